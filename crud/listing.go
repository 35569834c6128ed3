package crud

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
)

const (
	listingTitleMaxLength       = 100
	listingDescriptionMaxLength = 1000
	listingCategoryMaxLength    = 30
	defaultListingCurrency      = "ETH"
)

// ListingService manages marketplace Listings.
// It implements the domain.ListingService interface.
type ListingService struct {
	listingValidator
}

type listingValidator struct {
	currencyRegex *regexp.Regexp
	listingGorm
}

type listingGorm struct {
	db *gorm.DB
}

// NewListingService returns an instance of ListingService.
func NewListingService(db *gorm.DB) *ListingService {
	return &ListingService{
		listingValidator{
			currencyRegex: regexp.MustCompile(`^[A-Z]{1,10}$`),
			listingGorm: listingGorm{
				db: db,
			},
		},
	}
}

var _ domain.ListingService = &ListingService{}

// Create runs validations needed for creating new Listing database records.
// New listings are always active.
func (lv *listingValidator) Create(ctx context.Context, listing *domain.Listing) error {
	listing.Status = domain.ListingActive
	err := runListingValFns(listing,
		lv.userIdValid,
		lv.normalize,
		lv.titleLength,
		lv.descriptionMaxLength,
		lv.categoryMaxLength,
		lv.priceValid,
		lv.currencyFormat,
		lv.contractAddressValid,
		lv.statusValid)
	if err != nil {
		return err
	}
	return lv.listingGorm.Create(ctx, listing)
}

// Update runs the same validations as Create, the status may change as well.
func (lv *listingValidator) Update(ctx context.Context, listing *domain.Listing) error {
	err := runListingValFns(listing,
		lv.idValid,
		lv.normalize,
		lv.titleLength,
		lv.descriptionMaxLength,
		lv.categoryMaxLength,
		lv.priceValid,
		lv.currencyFormat,
		lv.contractAddressValid,
		lv.statusValid)
	if err != nil {
		return err
	}
	return lv.listingGorm.Update(ctx, listing)
}

func (lv *listingValidator) Delete(ctx context.Context, listing *domain.Listing) error {
	if err := runListingValFns(listing, lv.idValid); err != nil {
		return err
	}
	return lv.listingGorm.Delete(ctx, listing)
}

func runListingValFns(listing *domain.Listing, fns ...listingValFn) error {
	for _, fn := range fns {
		if err := fn(listing); err != nil {
			return err
		}
	}
	return nil
}

type listingValFn func(listing *domain.Listing) error

func (lv *listingValidator) idValid(listing *domain.Listing) error {
	if listing.ID <= 0 {
		return errs.IdInvalid
	}
	return nil
}

func (lv *listingValidator) userIdValid(listing *domain.Listing) error {
	if listing.UserID <= 0 {
		return errs.UserIdValid
	}
	return nil
}

// normalize trims the text fields, upper-cases the currency and lower-cases the category.
func (lv *listingValidator) normalize(listing *domain.Listing) error {
	listing.Title = strings.TrimSpace(listing.Title)
	listing.Description = strings.TrimSpace(listing.Description)
	listing.Category = strings.ToLower(strings.TrimSpace(listing.Category))
	listing.Currency = strings.ToUpper(strings.TrimSpace(listing.Currency))
	if listing.Currency == "" {
		listing.Currency = defaultListingCurrency
	}
	listing.ContractAddress = strings.TrimSpace(listing.ContractAddress)
	listing.Status = strings.ToLower(strings.TrimSpace(listing.Status))
	return nil
}

func (lv *listingValidator) titleLength(listing *domain.Listing) error {
	n := utf8.RuneCountInString(listing.Title)
	if n == 0 {
		return errs.Errorf(errs.EINVALID, "A listing needs a title.")
	}
	if n > listingTitleMaxLength {
		return errs.Errorf(errs.EINVALID, "The listing title max length is 100 characters.")
	}
	return nil
}

func (lv *listingValidator) descriptionMaxLength(listing *domain.Listing) error {
	if utf8.RuneCountInString(listing.Description) > listingDescriptionMaxLength {
		return errs.Errorf(errs.EINVALID, "The listing description max length is 1000 characters.")
	}
	return nil
}

func (lv *listingValidator) categoryMaxLength(listing *domain.Listing) error {
	if utf8.RuneCountInString(listing.Category) > listingCategoryMaxLength {
		return errs.Errorf(errs.EINVALID, "The listing category max length is 30 characters.")
	}
	return nil
}

func (lv *listingValidator) priceValid(listing *domain.Listing) error {
	if listing.Price < 0 || math.IsNaN(listing.Price) || math.IsInf(listing.Price, 0) {
		return errs.Errorf(errs.EINVALID, "The price must not be negative.")
	}
	return nil
}

func (lv *listingValidator) currencyFormat(listing *domain.Listing) error {
	if !lv.currencyRegex.MatchString(listing.Currency) {
		return errs.Errorf(errs.EINVALID, "The currency must be up to 10 letters, like ETH or USDC.")
	}
	return nil
}

// contractAddressValid checksums the contract address, if there is one.
func (lv *listingValidator) contractAddressValid(listing *domain.Listing) error {
	if listing.ContractAddress == "" {
		return nil
	}
	address, err := auth.NormalizeAddress(listing.ContractAddress)
	if err != nil {
		return errs.Errorf(errs.EINVALID, "The contract address is invalid.")
	}
	listing.ContractAddress = address
	return nil
}

func (lv *listingValidator) statusValid(listing *domain.Listing) error {
	if listing.Status != domain.ListingActive && listing.Status != domain.ListingClosed {
		return errs.Errorf(errs.EINVALID, "The status must be active or closed.")
	}
	return nil
}

// ByID retrieves a single Listing by ID, along with its User.
func (lg *listingGorm) ByID(ctx context.Context, id int) (*domain.Listing, error) {
	var listing domain.Listing
	err := lg.db.WithContext(ctx).Preload("User").First(&listing, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "The listing does not exist.")
	}
	return &listing, nil
}

// Find lists listings matching filter, newest first.
func (lg *listingGorm) Find(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	q := lg.db.WithContext(ctx).Preload("User")
	if filter.Category != "" {
		q = q.Where("category = ?", strings.ToLower(filter.Category))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", strings.ToLower(filter.Status))
	}
	if filter.UserID > 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	listings := []domain.Listing{}
	err := q.Order("created_at desc, id desc").Scopes(paginate(filter.Page)).Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (lg *listingGorm) Create(ctx context.Context, listing *domain.Listing) error {
	if err := lg.db.WithContext(ctx).Omit("User").Create(listing).Error; err != nil {
		return err
	}
	return lg.db.WithContext(ctx).Preload("User").First(listing, "id = ?", listing.ID).Error
}

func (lg *listingGorm) Update(ctx context.Context, listing *domain.Listing) error {
	return lg.db.WithContext(ctx).Model(listing).
		Select("title", "description", "category", "price", "currency", "contract_address", "status").
		Updates(listing).Error
}

// Delete soft-deletes a Listing.
func (lg *listingGorm) Delete(ctx context.Context, listing *domain.Listing) error {
	return lg.db.WithContext(ctx).Delete(listing).Error
}

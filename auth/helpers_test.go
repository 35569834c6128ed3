package auth

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"basebuzz/domain"
	"basebuzz/errs"
)

// wallet is a test key pair.
type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// sign produces a personal_sign signature the way browser wallets do, with V as 27/28.
func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// memUsers is an in-memory UserService covering what auth needs.
type memUsers struct {
	domain.UserService

	mu     sync.Mutex
	nextID int
	users  map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*domain.User)}
}

func (m *memUsers) add(address string) *domain.User {
	u, _ := m.ConnectWallet(context.Background(), address)
	return u
}

func (m *memUsers) ByWalletAddress(_ context.Context, address string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[address]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, errs.Errorf(errs.ENOTFOUND, "User not found.")
}

func (m *memUsers) ByProviderUserID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ProviderUserID != nil && *u.ProviderUserID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.Errorf(errs.ENOTFOUND, "User not found.")
}

func (m *memUsers) ConnectWallet(_ context.Context, address string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[address]; ok {
		cp := *u
		return &cp, nil
	}
	m.nextID++
	u := &domain.User{ID: m.nextID, WalletAddress: address}
	m.users[address] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) LinkProvider(_ context.Context, user *domain.User, providerUserID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[user.WalletAddress]
	u.ProviderUserID = &providerUserID
	u.Email = email
	user.ProviderUserID = &providerUserID
	user.Email = email
	return nil
}

func (m *memUsers) BumpSessionVersion(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.WalletAddress].SessionVersion++
	user.SessionVersion = m.users[user.WalletAddress].SessionVersion
	return nil
}

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"basebuzz/domain"
	"basebuzz/errs"
)

// maxBodyBytes caps json request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes v as json with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs.LogError(r, err)
	}
}

// message is the body of responses that have nothing else to say.
type message struct {
	Message string `json:"message"`
}

// decodeJSON reads the json request body into v. An empty body leaves v untouched
// if allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errs.Errorf(errs.EINVALID, "Invalid request body.")
	}
	return nil
}

// idParam parses a numeric route parameter.
func idParam(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		return 0, errs.Errorf(errs.EINVALID, "Invalid ID format.")
	}
	return id, nil
}

// pageParams parses the offset and limit query parameters.
func pageParams(r *http.Request) (domain.Page, error) {
	var page domain.Page
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, errs.Errorf(errs.EINVALID, "Invalid offset.")
		}
		page.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, errs.Errorf(errs.EINVALID, "Invalid limit.")
		}
		page.Limit = n
	}
	return page, nil
}

package response

import (
	"encoding/json"
	"net/http"

	"github.com/user/isbn-service/internal/entity"
)

// FailureNote accompanies every failed lookup.
const FailureNote = "you may have provided an invalid ISBN, or there may be an issue with the server"

// IndexResponse is the body of the root endpoint.
type IndexResponse struct {
	OK bool `json:"ok"`
}

// BookResult is the public view of a cached book record.
type BookResult struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	PubDate string `json:"pub_date"`
	Binding string `json:"binding"`
	Img     string `json:"img,omitempty"`
}

// LookupResponse is returned for a resolved ISBN query.
type LookupResponse struct {
	OK     bool       `json:"ok"`
	Cached bool       `json:"cached"`
	Result BookResult `json:"result"`
}

// FailureResponse is returned for any failed ISBN query.
type FailureResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Note  string `json:"note"`
}

// HealthResponse reports store reachability.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func NewLookupResponse(cached bool, record *entity.BookRecord) LookupResponse {
	return LookupResponse{
		OK:     true,
		Cached: cached,
		Result: BookResult{
			Title:   record.Title,
			Author:  record.Author,
			PubDate: record.PubDate,
			Binding: record.Binding,
			Img:     record.CoverURL,
		},
	}
}

func NewFailureResponse(diagnostic string) FailureResponse {
	return FailureResponse{OK: false, Error: diagnostic, Note: FailureNote}
}

// JSON writes payload with the given status code.
func JSON(w http.ResponseWriter, code int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(body)
	return err
}

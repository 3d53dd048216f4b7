package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/usergate/internal/models"
)

const DefaultIndex = "users"

type Searcher interface {
	Search(ctx context.Context, query string, from, size int) (int64, []models.User, error)
}

// SearcherFunc adapts a plain function, such as the database fallback, to
// Searcher.
type SearcherFunc func(ctx context.Context, query string, from, size int) (int64, []models.User, error)

func (f SearcherFunc) Search(ctx context.Context, query string, from, size int) (int64, []models.User, error) {
	return f(ctx, query, from, size)
}

type document struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toDocument(u models.User) document {
	return document{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func (d document) user() models.User {
	return models.User{ID: d.ID, Username: d.Username, Email: d.Email, Role: d.Role, CreatedAt: d.CreatedAt}
}

// UserIndex keeps the user directory in Elasticsearch. Password hashes are
// never indexed.
type UserIndex struct {
	ES    *elasticsearch.Client
	Index string
}

func NewUserIndex(es *elasticsearch.Client, index string) *UserIndex {
	if index == "" {
		index = DefaultIndex
	}
	return &UserIndex{ES: es, Index: index}
}

func (x *UserIndex) IndexUser(ctx context.Context, u models.User) error {
	body, err := json.Marshal(toDocument(u))
	if err != nil {
		return fmt.Errorf("search: encode user: %w", err)
	}
	res, err := x.ES.Index(x.Index, bytes.NewReader(body),
		x.ES.Index.WithContext(ctx),
		x.ES.Index.WithDocumentID(strconv.FormatUint(uint64(u.ID), 10)),
		x.ES.Index.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("search: index user: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index user", res.StatusCode, res.Body)
	}
	return nil
}

func (x *UserIndex) DeleteUser(ctx context.Context, id uint) error {
	res, err := x.ES.Delete(x.Index, strconv.FormatUint(uint64(id), 10),
		x.ES.Delete.WithContext(ctx),
		x.ES.Delete.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("search: delete user: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete user", res.StatusCode, res.Body)
	}
	return nil
}

func (x *UserIndex) Search(ctx context.Context, query string, from, size int) (int64, []models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, []models.User{}, nil
	}
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"username^2", "email"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("search: encode query: %w", err)
	}

	res, err := x.ES.Search(
		x.ES.Search.WithContext(ctx),
		x.ES.Search.WithIndex(x.Index),
		x.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, responseError("search", res.StatusCode, res.Body)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("search: decode response: %w", err)
	}

	users := make([]models.User, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		users[i] = hit.Source.user()
	}
	return r.Hits.Total.Value, users, nil
}

func responseError(op string, status int, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 4096))
	return fmt.Errorf("search: %s: status %d: %s", op, status, strings.TrimSpace(string(b)))
}

package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
)

// DriverIndex is the searchable directory of verified Driver accounts.
type DriverIndex struct {
	ES      *elasticsearch.Client
	Name    string
	Timeout time.Duration
}

func NewDriverIndex(es *elasticsearch.Client, index string) *DriverIndex {
	return &DriverIndex{ES: es, Name: index, Timeout: 3 * time.Second}
}

type driverDoc struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Image     string `json:"image"`
	Role      string `json:"role"`
	UpdatedAt string `json:"updated_at"`
}

func (d *DriverIndex) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Timeout)
}

func (d *DriverIndex) Index(ctx context.Context, a *entity.Account) error {
	b, err := json.Marshal(driverDoc{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Image:     a.ImageURL,
		Role:      string(a.Role),
		UpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	c, cancel := d.ctx(ctx)
	defer cancel()

	req := esapi.IndexRequest{Index: d.Name, DocumentID: a.ID, Body: bytes.NewReader(b), Refresh: "false"}
	res, err := req.Do(c, d.ES)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("es index %s: %s", a.ID, res.Status())
	}
	return nil
}

// Remove deletes a document; a missing document is not an error.
func (d *DriverIndex) Remove(ctx context.Context, id string) error {
	c, cancel := d.ctx(ctx)
	defer cancel()

	req := esapi.DeleteRequest{Index: d.Name, DocumentID: id}
	res, err := req.Do(c, d.ES)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("es delete %s: %s", id, res.Status())
	}
	return nil
}

// SearchDrivers runs a multi_match over email and name; an empty query lists drivers.
func (d *DriverIndex) SearchDrivers(ctx context.Context, q string, size int) ([]entity.PublicAccount, error) {
	var query map[string]any
	if q == "" {
		query = map[string]any{"match_all": map[string]any{}}
	} else {
		query = map[string]any{
			"multi_match": map[string]any{
				"query":     q,
				"fields":    []string{"email^2", "name"},
				"fuzziness": "AUTO",
			},
		}
	}
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   query,
				"filter": map[string]any{"term": map[string]any{"role.keyword": string(entity.RoleDriver)}},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	c, cancel := d.ctx(ctx)
	defer cancel()

	res, err := d.ES.Search(
		d.ES.Search.WithContext(c),
		d.ES.Search.WithIndex(d.Name),
		d.ES.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("es search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source driverDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]entity.PublicAccount, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, entity.PublicAccount{
			Name:  h.Source.Name,
			Email: h.Source.Email,
			Image: h.Source.Image,
			Role:  entity.Role(h.Source.Role),
		})
	}
	return out, nil
}

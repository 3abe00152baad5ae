package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"gamevault/internal/services"
)

// ErrNotFound is returned by Read when the document does not exist.
var ErrNotFound = services.ErrNotFound

// Store is a collection-scoped key-value document store. Each Write replaces
// a whole document atomically; there are no cross-document transactions.
type Store interface {
	Read(ctx context.Context, collection, id string) ([]byte, error)
	Write(ctx context.Context, collection, id string, doc []byte) error
	BatchRead(ctx context.Context, collection string, ids []string) (map[string][]byte, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]string, error)
	Close() error
}

// ReadJSON reads and decodes one document.
func ReadJSON[T any](ctx context.Context, s Store, collection, id string) (T, error) {
	var out T
	raw, err := s.Read(ctx, collection, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, services.Wrap(services.ErrValidation, "docstore", "decode", fmt.Sprintf("%s/%s", collection, id), err)
	}
	return out, nil
}

// WriteJSON encodes and writes one document.
func WriteJSON(ctx context.Context, s Store, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return services.Wrap(services.ErrValidation, "docstore", "encode", fmt.Sprintf("%s/%s", collection, id), err)
	}
	return s.Write(ctx, collection, id, raw)
}

// BatchReadJSON reads and decodes many documents. Absent IDs are omitted.
func BatchReadJSON[T any](ctx context.Context, s Store, collection string, ids []string) (map[string]T, error) {
	raw, err := s.BatchRead(ctx, collection, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	for id, doc := range raw {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, services.Wrap(services.ErrValidation, "docstore", "decode", fmt.Sprintf("%s/%s", collection, id), err)
		}
		out[id] = v
	}
	return out, nil
}

func notFound(collection, id string) error {
	return services.Wrap(ErrNotFound, "docstore", "read", fmt.Sprintf("%s/%s", collection, id), nil)
}

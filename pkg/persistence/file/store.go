package file

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/autoflow/pkg/persistence"
)

const (
	dirPerm  = 0750
	filePerm = 0600
)

// jsonDir keeps one JSON document per entity in a directory.
type jsonDir[T any] struct {
	dir string
}

func newJSONDir[T any](root, name string) jsonDir[T] {
	return jsonDir[T]{dir: filepath.Join(root, name)}
}

func validID(id string) error {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", persistence.ErrInvalidID, id)
	}

	return nil
}

func (d jsonDir[T]) path(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}

	return filepath.Join(d.dir, id+".json"), nil
}

// read returns nil without error when the document does not exist.
func (d jsonDir[T]) read(id string) (*T, error) {
	filePath, err := d.path(id)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	var value T
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}

	return &value, nil
}

// write replaces the document atomically through a temporary file.
func (d jsonDir[T]) write(id string, value *T) error {
	filePath, err := d.path(id)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d.dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(d.dir, "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to close %s: %w", id, err)
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to chmod %s: %w", id, err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to move %s into place: %w", id, err)
	}

	return nil
}

// remove reports whether a document was deleted.
func (d jsonDir[T]) remove(id string) (bool, error) {
	filePath, err := d.path(id)
	if err != nil {
		return false, err
	}

	err = os.Remove(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to delete %s: %w", id, err)
	}

	return true, nil
}

func (d jsonDir[T]) all() ([]*T, error) {
	jsonFiles, err := fs.Glob(os.DirFS(d.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.dir, err)
	}

	items := make([]*T, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		item, err := d.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		if item != nil {
			items = append(items, item)
		}
	}

	return items, nil
}

func paginate[T any](items []*T, limit, offset int) ([]*T, int64, bool) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if offset < 0 {
		offset = 0
	}

	total := int64(len(items))

	if offset >= len(items) {
		return make([]*T, 0), total, false
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	return items[offset:end], total, end < len(items)
}

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileRepository reads a JSON array of users. A missing or empty file holds no users.
type FileRepository struct {
	path string
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (r *FileRepository) LoadAll() ([]User, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var users []User
	if err := json.NewDecoder(f).Decode(&users); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return users, nil
}

package storage

import (
	"fmt"

	"github.com/hatlonely/webdb/cfg/validator"
)

// ValidateStorage 在 ConvertTo 之后按 validate tag 校验结果
type ValidateStorage struct {
	storage Storage
}

func NewValidateStorage(storage Storage) *ValidateStorage {
	return &ValidateStorage{storage: storage}
}

func (vs *ValidateStorage) Sub(key string) Storage {
	if vs.storage == nil {
		return nil
	}
	return NewValidateStorage(vs.storage.Sub(key))
}

func (vs *ValidateStorage) ConvertTo(object interface{}) error {
	if vs.storage == nil {
		return nil
	}

	if err := vs.storage.ConvertTo(object); err != nil {
		return err
	}

	if err := validator.ValidateStruct(object); err != nil {
		return fmt.Errorf("validation failed: %v", err)
	}

	return nil
}

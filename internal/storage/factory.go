package storage

import (
	"fmt"

	"github.com/lgulliver/docdesk/pkg/config"
)

// StorageFactory creates blob stores based on configuration
type StorageFactory struct {
	config *config.StorageConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(config *config.StorageConfig) *StorageFactory {
	return &StorageFactory{config: config}
}

// CreateStorage creates a blob store for the configured type. Tools operate on
// local file paths, so only the local filesystem is supported.
func (sf *StorageFactory) CreateStorage() (BlobStore, error) {
	switch sf.config.Type {
	case "local", "":
		return NewLocalStorage(sf.config.UploadsPath)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sf.config.Type)
	}
}

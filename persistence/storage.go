package persistence

import (
	"fmt"
)

type NotFoundError struct {
	ExecutionId string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("execution %s not found", e.ExecutionId)
}

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

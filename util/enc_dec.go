package util

import "encoding/json"

// Codec serializes domain records for storage backends that hold bytes.
type Codec[T any] interface {
	Marshal(value *T) ([]byte, error)
	Unmarshal(data []byte) (*T, error)
}

var _ Codec[any] = jsonCodec[any]{}

type jsonCodec[T any] struct{}

func NewJsonCodec[T any]() Codec[T] {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Marshal(value *T) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonCodec[T]) Unmarshal(data []byte) (*T, error) {
	res := new(T)
	if err := json.Unmarshal(data, res); err != nil {
		return nil, err
	}
	return res, nil
}

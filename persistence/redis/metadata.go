package redis

import (
	"context"

	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/metadata"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/persistence"
	"github.com/autoflow/autoflow/util"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const TEMPLATE string = "TEMPLATE"

var _ metadata.MetadataStorage = new(redisMetadataStorage)

type redisMetadataStorage struct {
	*baseDao
	codec util.Codec[model.WorkflowTemplate]
}

func NewRedisMetadataStorage(conf Config) *redisMetadataStorage {
	return &redisMetadataStorage{
		baseDao: newBaseDao(conf),
		codec:   util.NewJsonCodec[model.WorkflowTemplate](),
	}
}

func (s *redisMetadataStorage) SaveTemplate(t model.WorkflowTemplate) error {
	key := s.getNamespaceKey(TEMPLATE)
	ctx := context.Background()
	data, err := s.codec.Marshal(&t)
	if err != nil {
		return err
	}
	if err := s.redisClient.HSet(ctx, key, []string{t.Name, string(data)}).Err(); err != nil {
		logger.Error("error in saving workflow template", zap.String("template", t.Name), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *redisMetadataStorage) GetTemplate(name string) (*model.WorkflowTemplate, error) {
	key := s.getNamespaceKey(TEMPLATE)
	ctx := context.Background()
	val, err := s.redisClient.HGet(ctx, key, name).Result()
	if err == rd.Nil {
		return nil, metadata.UnknownTemplateError{Name: name}
	}
	if err != nil {
		logger.Error("error in getting workflow template", zap.String("template", name), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return s.codec.Unmarshal([]byte(val))
}

func (s *redisMetadataStorage) DeleteTemplate(name string) error {
	key := s.getNamespaceKey(TEMPLATE)
	ctx := context.Background()
	deleted, err := s.redisClient.HDel(ctx, key, name).Result()
	if err != nil {
		logger.Error("error in deleting workflow template", zap.String("template", name), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if deleted == 0 {
		return metadata.UnknownTemplateError{Name: name}
	}
	return nil
}

func (s *redisMetadataStorage) ListTemplates() ([]string, error) {
	key := s.getNamespaceKey(TEMPLATE)
	ctx := context.Background()
	names, err := s.redisClient.HKeys(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return names, nil
}

package redis

import (
	"context"

	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/persistence"
	"github.com/autoflow/autoflow/util"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const EXECUTION string = "EXECUTION"
const EXECUTION_RUNNING string = "EXECUTION_RUNNING"

var _ persistence.ExecutionStorage = new(redisExecutionStorage)

type redisExecutionStorage struct {
	*baseDao
	codec util.Codec[model.WorkflowExecution]
}

func NewRedisExecutionStorage(conf Config) *redisExecutionStorage {
	return &redisExecutionStorage{
		baseDao: newBaseDao(conf),
		codec:   util.NewJsonCodec[model.WorkflowExecution](),
	}
}

func (s *redisExecutionStorage) Save(execution *model.WorkflowExecution) error {
	key := s.getNamespaceKey(EXECUTION, execution.Id)
	runningKey := s.getNamespaceKey(EXECUTION_RUNNING)
	ctx := context.Background()
	data, err := s.codec.Marshal(execution)
	if err != nil {
		return err
	}
	if err := s.redisClient.Set(ctx, key, data, 0).Err(); err != nil {
		logger.Error("error in saving execution", zap.String("id", execution.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if execution.Status.IsTerminal() {
		err = s.redisClient.SRem(ctx, runningKey, execution.Id).Err()
	} else {
		err = s.redisClient.SAdd(ctx, runningKey, execution.Id).Err()
	}
	if err != nil {
		logger.Error("error in updating running set", zap.String("id", execution.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *redisExecutionStorage) Get(executionId string) (*model.WorkflowExecution, error) {
	key := s.getNamespaceKey(EXECUTION, executionId)
	ctx := context.Background()
	val, err := s.redisClient.Get(ctx, key).Result()
	if err == rd.Nil {
		return nil, persistence.NotFoundError{ExecutionId: executionId}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return s.codec.Unmarshal([]byte(val))
}

func (s *redisExecutionStorage) List() ([]*model.WorkflowExecution, error) {
	ctx := context.Background()
	pattern := s.getNamespaceKey(EXECUTION, "*")
	keys, err := s.redisClient.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.WorkflowExecution, 0, len(keys))
	for _, key := range keys {
		val, err := s.redisClient.Get(ctx, key).Result()
		if err == rd.Nil {
			continue
		}
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		execution, err := s.codec.Unmarshal([]byte(val))
		if err != nil {
			return nil, err
		}
		out = append(out, execution)
	}
	return out, nil
}

func (s *redisExecutionStorage) ListRunning() ([]*model.WorkflowExecution, error) {
	ctx := context.Background()
	ids, err := s.redisClient.SMembers(ctx, s.getNamespaceKey(EXECUTION_RUNNING)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var out []*model.WorkflowExecution
	for _, id := range ids {
		execution, err := s.Get(id)
		if err != nil {
			if _, ok := err.(persistence.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		out = append(out, execution)
	}
	return out, nil
}

func (s *redisExecutionStorage) Delete(executionId string) error {
	ctx := context.Background()
	key := s.getNamespaceKey(EXECUTION, executionId)
	if err := s.redisClient.Del(ctx, key).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := s.redisClient.SRem(ctx, s.getNamespaceKey(EXECUTION_RUNNING), executionId).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

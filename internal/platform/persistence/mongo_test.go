package persistence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type stubIndexer struct {
	calls int
	err   error
}

func (s *stubIndexer) EnsureIndexes(context.Context) error {
	s.calls++
	return s.err
}

func newMongoForTest() *MongoDB {
	// mongo.Connect does not dial until the first operation
	client, _ := mongo.Connect(context.TODO(), options.Client().ApplyURI("mongodb://localhost:27017"))
	return &MongoDB{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		client:   client,
		database: client.Database("testdb"),
	}
}

func TestMongoDB_Database(t *testing.T) {
	mdb := newMongoForTest()
	assert.Equal(t, "testdb", mdb.Database().Name())
}

func TestMongoDB_EnsureIndexes(t *testing.T) {
	mdb := newMongoForTest()

	first, second := &stubIndexer{}, &stubIndexer{}
	assert.NoError(t, mdb.EnsureIndexes(context.Background(), first, second))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	buildErr := errors.New("index build failed")
	failing := &stubIndexer{err: buildErr}
	after := &stubIndexer{}
	err := mdb.EnsureIndexes(context.Background(), failing, after)
	assert.ErrorIs(t, err, buildErr)
	assert.Contains(t, err.Error(), "*persistence.stubIndexer")
	assert.Equal(t, 1, after.calls, "a failing indexer does not hide later ones")
}

package db

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func duplicateKeyError() error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: `E11000 duplicate key error collection: test.checkout_sessions index: open_session_per_listing dup key: { listing_id: "l-1" }`,
	}}}
}

func networkError() error {
	return mongo.CommandError{Code: 6, Message: "connection reset", Labels: []string{"NetworkError"}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	err := WithRetries(func() error {
		opCalled++
		return nil
	}, 3, IsMongoTransientError)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_NonRetryableReturnsImmediately(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("some other error")
	err := WithRetries(func() error {
		opCalled++
		return expectedErr
	}, 3, IsMongoTransientError)
	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	maxRetries := 2
	err := WithRetries(func() error {
		opCalled++
		return networkError()
	}, maxRetries, IsMongoTransientError)
	if err == nil {
		t.Fatal("Expected an error after exhausting retries, got nil")
	}
	if opCalled != maxRetries+1 {
		t.Errorf("Expected operation to be called %d times, got %d", maxRetries+1, opCalled)
	}
}

func TestWithRetries_RecoversAfterTransientFailure(t *testing.T) {
	var opCalled int
	err := Try(func() error {
		opCalled++
		if opCalled < 3 {
			return networkError()
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if opCalled != 3 {
		t.Errorf("Expected operation to be called 3 times, got %d", opCalled)
	}
}

func TestTry_DoesNotRetryDuplicateKey(t *testing.T) {
	var opCalled int
	err := Try(func() error {
		opCalled++
		return duplicateKeyError()
	})
	if !IsMongoDuplicateKeyError(err) {
		t.Errorf("Expected a duplicate key error, got %v", err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestIsMongoDuplicateKeyError(t *testing.T) {
	if !IsMongoDuplicateKeyError(duplicateKeyError()) {
		t.Error("Expected WriteException with code 11000 to be a duplicate key error")
	}
	bulk := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Code: 11000}}}}
	if !IsMongoDuplicateKeyError(bulk) {
		t.Error("Expected BulkWriteException with code 11000 to be a duplicate key error")
	}
	if IsMongoDuplicateKeyError(errors.New("E11000 in text only")) {
		t.Error("Plain errors must not be treated as duplicate key errors")
	}
}

func TestIsMongoTransientError(t *testing.T) {
	if !IsMongoTransientError(networkError()) {
		t.Error("Expected network error to be transient")
	}
	if !IsMongoTransientError(mongo.CommandError{Labels: []string{"RetryableWriteError"}}) {
		t.Error("Expected RetryableWriteError label to be transient")
	}
	if IsMongoTransientError(mongo.ErrNoDocuments) {
		t.Error("ErrNoDocuments is not transient")
	}
	if IsMongoTransientError(nil) {
		t.Error("nil is not transient")
	}
}

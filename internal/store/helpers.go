package store

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

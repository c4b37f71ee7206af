package services

import "github.com/google/uuid"

func newCaseID() string {
	return uuid.New().String()
}

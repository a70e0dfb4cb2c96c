package storage

import "liquidityHouse/internal/model"

// Storage is a sink for committed house events.
type Storage interface {
	PutEvents(events []model.HouseEvent) error
}

package model

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the primary key is still zero, so rows
// get ids on drivers without gen_random_uuid().
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

package hub

// userIndex maps a user id to the one connection currently considered
// current for that user. Last authentication wins. Loop-owned.
type userIndex struct {
	current map[int64]ConnID
}

func newUserIndex() *userIndex {
	return &userIndex{current: make(map[int64]ConnID)}
}

// bind points userID at id, superseding any previous mapping.
func (u *userIndex) bind(userID int64, id ConnID) {
	u.current[userID] = id
}

func (u *userIndex) lookup(userID int64) (ConnID, bool) {
	id, ok := u.current[userID]
	return id, ok
}

// evict drops the mapping for userID only if it still points at id.
func (u *userIndex) evict(userID int64, id ConnID) bool {
	if cur, ok := u.current[userID]; ok && cur == id {
		delete(u.current, userID)
		return true
	}
	return false
}

func (u *userIndex) len() int { return len(u.current) }

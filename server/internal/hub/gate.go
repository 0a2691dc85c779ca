package hub

// authenticate runs the auth gate for c. On success the identity is bound
// (replacing any earlier one) and the user index points at c. On failure c
// keeps whatever identity it had.
func (h *Hub) authenticate(c *connection, token string) error {
	claims, err := h.validator.Validate(token)
	if err != nil {
		h.logger.Warn("authentication failed", "conn", c.id, "err", err)
		return &AuthError{Err: err}
	}
	user := identityFromClaims(claims)

	if prev := c.identity; prev != nil && prev.ID != user.ID {
		h.users.evict(prev.ID, c.id)
	}
	c.identity = &user

	if prevConn, ok := h.users.lookup(user.ID); ok && prevConn != c.id {
		h.logger.Debug("user connection superseded", "user", user.ID, "old_conn", prevConn, "conn", c.id)
	}
	h.users.bind(user.ID, c.id)

	h.logger.Info("connection authenticated", "conn", c.id, "user", user.ID, "username", user.Username)
	h.sendTo(c.id, authSuccessFrame{header: h.header(TypeAuthSuccess), User: user})
	return nil
}

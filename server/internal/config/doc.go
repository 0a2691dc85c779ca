// Package config loads the server configuration from the `server:` section
// of config.yaml.
//
// Config fields:
//   - GRPCPort  : port for the gRPC push service (default 50051)
//   - HTTPPort  : port for REST, /metrics and the WebSocket endpoint (default 8080)
//   - Auth      : API-key guard for push clients (mode apikey|none, key_env, header)
//   - Token     : access-token verification, HMAC via secret_env or RSA via
//     public_key_file, optional issuer and leeway
//   - WS        : path (/ws), send_buffer (64), max_message_size (4096), pong_wait (60s)
//   - Queue     : AMQP push consumer, enabled when url_env resolves (name presencehub.push)
//   - Log       : level (info) and optional rotated file
//
// Secrets never live in the file; *_env fields name the environment variable
// holding them. Load(path) applies defaults before unmarshalling, then
// validates. Watch(ctx, path, fn) reloads on change.
package config

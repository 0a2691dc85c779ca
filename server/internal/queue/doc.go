// Package queue feeds push events from RabbitMQ into the hub.
//
// Messages on the durable queue (default presencehub.push) carry a
// pushapi.Event JSON envelope:
//
//	{"type":"new_story","story":{...}}
//	{"type":"new_comment","comment":{...},"story":{...}}
//	{"type":"notify_user","user_id":7,"message":{...}}
//
// Deliveries are acked after the hub has applied them. Envelopes that can
// never be applied are nacked without requeue; failures caused by the hub
// shutting down or a timeout are requeued. The consumer reconnects with
// exponential backoff (1s to 30s).
package queue

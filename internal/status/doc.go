// Package status is a client for the HTTP status endpoint of skvs-server.
//
// The endpoint is optional and served next to the protocol listener when
// the server is started with --status-addr. It exposes:
//   - GET /health: 200 while the server is serving
//   - GET /info: table statistics and a per-bucket snapshot (server.Info)
//   - GET /metrics: prometheus text format
//
// Addresses may be given as host:port or as a full http(s) URL:
//
//	c := status.NewClient("127.0.0.1:9100")
//	if err := c.WaitHealthy(ctx, 100*time.Millisecond); err != nil {
//		return err
//	}
//	info, err := c.Info(ctx)
package status

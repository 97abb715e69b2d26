// Command ratelimiter runs the rate limiting service and its tooling.
//
// Usage:
//
//	# Start the server with ./config.yaml or ./config/config.yaml if present
//	ratelimiter serve
//
//	# Print the effective configuration
//	ratelimiter config --config /etc/ratelimiter/config.yaml
//
//	# Try a strategy without a server
//	ratelimiter simulate --strategy token_bucket --max 10 --window 1m --requests 20 --interval 1s
package main

func main() {
	Execute()
}

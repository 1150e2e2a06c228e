// Package httpretry holds the retry and backoff policy shared by the HTTP
// translation clients. Requests are retried on 408, 429 and 5xx responses
// (honouring Retry-After) and on network timeouts, with exponential backoff.
package httpretry

// Package domain holds the wire types shared between the HTTP surface and
// the relay core: notification payloads, the subscribe control message, and
// the frames pushed to connected websites.
package domain

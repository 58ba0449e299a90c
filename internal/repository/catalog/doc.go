// Package catalog fetches the ordered list of release channels from a
// list-branches style HTTP endpoint.
package catalog

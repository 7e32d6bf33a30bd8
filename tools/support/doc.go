// Package support provides the customer support tools operating on an account store.
package support

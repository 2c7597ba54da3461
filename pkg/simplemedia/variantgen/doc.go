// Package variantgen contains VariantGenerator adapters for external image
// services and the Downloader that fetches their results.
package variantgen

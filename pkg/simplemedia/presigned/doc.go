// Package presigned issues and validates HMAC-signed delivery URLs for blob
// stores that cannot sign links natively, such as the memory and filesystem
// backends.
//
// A Signer implements simplemedia.LinkSigner. Signed URLs carry two query
// parameters, signature and expires, computed over METHOD|PATH|EXPIRES:
//
//	signer := presigned.New(
//	    presigned.WithSecretKey(secret),
//	    presigned.WithBaseURL("https://media.example.com"),
//	    presigned.WithURLPattern("/blobs/{key}"),
//	)
//	link, err := signer.Sign(ctx, "spaces/s/originals/ab/cd_photo.jpg", time.Hour)
//
// Handler serves those URLs from any simplemedia.BlobStore, including single
// byte-range requests.
package presigned

package artifact

// DetailsEqual reports whether a and b are the same concrete Details variant
// with identical field values. This is the test for "immutable details" on
// every storage type except reference, where only the URL may legitimately
// change across idempotent re-creates.
func DetailsEqual(a, b Details) bool {
	switch av := a.(type) {
	case S3Details:
		bv, ok := b.(S3Details)
		return ok && av == bv
	case AzureDetails:
		bv, ok := b.(AzureDetails)
		return ok && av == bv
	case ReferenceDetails:
		bv, ok := b.(ReferenceDetails)
		return ok && av == bv
	case ErrorDetails:
		bv, ok := b.(ErrorDetails)
		return ok && av == bv
	default:
		return false
	}
}

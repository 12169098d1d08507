package shared

// UserSafeMessage returns an error message that can be shown to API callers.
// Module sentinels wrap their detail with fmt.Errorf, so the chain reads as
// one sentence.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

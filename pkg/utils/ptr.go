package utils

func ToPtr[T any](v T) *T {
	return &v
}

func StringToPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package library

import (
	"math/rand"
	"time"
)

func CreateRandomString(length int) string {
	random := rand.New(rand.NewSource(time.Now().UnixNano()))
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		result[i] = chars[random.Intn(len(chars))]
	}
	return string(result)
}

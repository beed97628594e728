package notifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign 计算请求体的 HMAC-SHA256 签名
// 接收端用同一 secret 重算并比对，防止伪造回调
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 校验签名（常量时间比较）
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

package auth

import (
	"testing"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	at := NewAuthToken("test-secret-key")

	token, err := at.GenerateToken("obsidian-desktop")
	if err != nil {
		t.Fatalf("生成token失败: %v", err)
	}
	if token == "" {
		t.Fatal("token不应为空")
	}

	valid, clientID, err := at.VerifyToken(token)
	if err != nil {
		t.Fatalf("验证token失败: %v", err)
	}
	if !valid {
		t.Error("token应有效")
	}
	if clientID != "obsidian-desktop" {
		t.Errorf("client_id期望 obsidian-desktop，实际 %q", clientID)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	issuer := NewAuthToken("secret-a")
	verifier := NewAuthToken("secret-b")

	token, err := issuer.GenerateToken("client")
	if err != nil {
		t.Fatalf("生成token失败: %v", err)
	}

	valid, _, err := verifier.VerifyToken(token)
	if err == nil || valid {
		t.Error("错误密钥签发的token应验证失败")
	}
}

func TestVerifyTokenGarbage(t *testing.T) {
	at := NewAuthToken("test-secret-key")

	valid, _, err := at.VerifyToken("not-a-jwt")
	if err == nil || valid {
		t.Error("非法token应验证失败")
	}
}

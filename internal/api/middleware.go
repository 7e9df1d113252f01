package api

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/viper"

	"github.com/sparkuma/spark-wallet/internal/logger"
)

var jwtKey []byte

// Claims is the JWT payload issued after a successful challenge login.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func (a *API) CORSMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowedOrigin := viper.GetString("allowed_origin")
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (a *API) JWTMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: Authorization header missing", http.StatusUnauthorized)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Unauthorized: Invalid token format", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return GetJWTKey(), nil
		})

		if err != nil {
			if validationErr, ok := err.(*jwt.ValidationError); ok {
				if validationErr.Errors == jwt.ValidationErrorExpired {
					http.Error(w, "Token expired", http.StatusUnauthorized)
					return
				}
			}
			logger.Warn("invalid token:", err)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		if !token.Valid {
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// GenerateJWT issues a short-lived token for a logged-in user.
func GenerateJWT(userID string) (string, error) {
	expirationTime := time.Now().Add(15 * time.Minute)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}

	signingKey := GetJWTKey()
	if signingKey == nil {
		return "", fmt.Errorf("JWT signing key not available")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

func GenerateJWTKey() ([]byte, error) {
	key := make([]byte, 32) // 256 bits
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT key: %v", err)
	}
	return key, nil
}

func SaveJWTKey(key []byte, walletName string) error {
	encodedKey := base64.StdEncoding.EncodeToString(key)
	keyPath := filepath.Join(viper.GetString("jwt_keys_dir"), walletName, "jwt_key")

	err := os.WriteFile(keyPath, []byte(encodedKey), 0600)
	if err != nil {
		return fmt.Errorf("failed to save JWT key: %v", err)
	}
	return nil
}

func LoadJWTKey(walletName string) ([]byte, error) {
	keyPath := filepath.Join(viper.GetString("jwt_keys_dir"), walletName, "jwt_key")

	encodedKey, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT key: %v", err)
	}

	key, err := base64.StdEncoding.DecodeString(string(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT key: %v", err)
	}
	return key, nil
}

// InitJWTKey loads a previously saved key into memory. Returns
// os.ErrNotExist when no key has been generated for this wallet yet.
func InitJWTKey(walletName string) error {
	key, err := LoadJWTKey(walletName)
	if err != nil {
		if errors := err.Error(); strings.Contains(errors, "no such file") {
			return os.ErrNotExist
		}
		return err
	}

	jwtKey = key
	return nil
}

func GetJWTKey() []byte {
	return jwtKey
}

// EnsureJWTKey generates a fresh signing key for the wallet and saves it,
// invalidating tokens from earlier runs.
func EnsureJWTKey(walletName string) error {
	walletDir := filepath.Join(viper.GetString("jwt_keys_dir"), walletName)
	if _, dirErr := os.Stat(walletDir); os.IsNotExist(dirErr) {
		if dirCreateErr := os.MkdirAll(walletDir, 0700); dirCreateErr != nil {
			return fmt.Errorf("failed to create directory for JWT key: %v", dirCreateErr)
		}
	}

	newKey, genErr := GenerateJWTKey()
	if genErr != nil {
		return fmt.Errorf("failed to generate new JWT key: %v", genErr)
	}

	if saveErr := SaveJWTKey(newKey, walletName); saveErr != nil {
		return fmt.Errorf("failed to save new JWT key: %v", saveErr)
	}

	jwtKey = newKey
	return nil
}

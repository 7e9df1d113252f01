package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/viper"

	"github.com/sparkuma/spark-wallet/internal/certs"
	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
	"github.com/sparkuma/spark-wallet/internal/lightspark"
	"github.com/sparkuma/spark-wallet/internal/logger"
	"github.com/sparkuma/spark-wallet/internal/uma"
	"github.com/sparkuma/spark-wallet/internal/wallet"
)

// API exposes the wallet and the UMA protocol endpoints over HTTP.
type API struct {
	Session    *wallet.Session
	UMA        *uma.Service
	Lightspark *lightspark.Client
	Indexed    walletstatedb.IndexedStore
	Certs      *certs.Material
	Name       string
}

func NewAPI(session *wallet.Session, umaService *uma.Service, ls *lightspark.Client,
	indexed walletstatedb.IndexedStore, material *certs.Material, name string) *API {
	return &API{
		Session:    session,
		UMA:        umaService,
		Lightspark: ls,
		Indexed:    indexed,
		Certs:      material,
		Name:       name,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response:", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HandleChallengeRequest issues a login challenge bound to the configured
// nostr pubkey. The challenge is stored hashed and single-use.
func (a *API) HandleChallengeRequest(w http.ResponseWriter, _ *http.Request) {
	pubKey := viper.GetString("uma_nostr_pubkey")
	if pubKey == "" {
		http.Error(w, "No login pubkey configured", http.StatusInternalServerError)
		return
	}

	challenge, hash, err := generateChallenge()
	if err != nil {
		http.Error(w, "Failed to generate challenge", http.StatusInternalServerError)
		return
	}

	newChallenge := walletstatedb.Challenge{
		Challenge: challenge,
		Hash:      hash,
		Status:    "unused",
		Npub:      pubKey,
		CreatedAt: time.Now(),
	}

	if err := a.Indexed.SaveChallenge(newChallenge); err != nil {
		http.Error(w, "Failed to save challenge", http.StatusInternalServerError)
		return
	}

	if err := a.Indexed.ExpireOldChallenges(); err != nil {
		logger.Warn("failed to expire old challenges:", err)
	}

	// Return the challenge as a nostr event for the frontend to sign
	event := &nostr.Event{
		PubKey:    pubKey,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      1,
		Tags:      nostr.Tags{},
		Content:   challenge,
	}

	writeJSON(w, http.StatusOK, event)
}

func generateChallenge() (string, string, error) {
	timestamp := time.Now().Format(time.RFC3339Nano)
	letters := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	challenge := make([]byte, 12)
	_, err := rand.Read(challenge)
	if err != nil {
		return "", "", err
	}
	for i := range challenge {
		challenge[i] = letters[challenge[i]%byte(len(letters))]
	}
	fullChallenge := fmt.Sprintf("%s-%s", string(challenge), timestamp)
	hash := sha256.Sum256([]byte(fullChallenge))
	return fullChallenge, hex.EncodeToString(hash[:]), nil
}

// VerifyChallenge checks a signed challenge event and issues a JWT on
// success. Challenges expire after two minutes and can be used once.
func (a *API) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var verifyPayload struct {
		Challenge string      `json:"challenge"`
		Event     nostr.Event `json:"event"`
	}

	if err := json.NewDecoder(r.Body).Decode(&verifyPayload); err != nil {
		http.Error(w, "Cannot parse JSON", http.StatusBadRequest)
		return
	}

	challengeHash := sha256.Sum256([]byte(verifyPayload.Challenge))
	hashString := hex.EncodeToString(challengeHash[:])
	challenge, err := a.Indexed.GetChallenge(hashString)
	if err != nil || challenge == nil || challenge.Status != "unused" {
		http.Error(w, "Invalid or expired challenge", http.StatusUnauthorized)
		return
	}

	if time.Since(challenge.CreatedAt) > 2*time.Minute {
		if err := a.Indexed.MarkChallengeAsUsed(challenge.Hash); err != nil {
			logger.Warn("failed to mark expired challenge:", err)
		}
		http.Error(w, "Challenge expired", http.StatusUnauthorized)
		return
	}

	if verifyPayload.Event.PubKey != challenge.Npub {
		http.Error(w, "Public key mismatch", http.StatusUnauthorized)
		return
	}

	if !verifyEvent(&verifyPayload.Event) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	if err := a.Indexed.MarkChallengeAsUsed(challenge.Hash); err != nil {
		http.Error(w, "Failed to mark challenge as used", http.StatusInternalServerError)
		return
	}

	tokenString, err := GenerateJWT(challenge.Npub)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

func verifyEvent(event *nostr.Event) bool {
	serialized := serializeEventForID(event)
	match, hash := HashAndCompare(serialized, event.ID)
	if !match {
		logger.Warn("event hash does not match ID:", event.ID)
		return false
	}

	signatureBytes, err := hex.DecodeString(event.Sig)
	if err != nil {
		return false
	}
	signature, err := schnorr.ParseSignature(signatureBytes)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(event.PubKey)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	if !signature.Verify(hash, pubKey) {
		return false
	}

	isValid, err := event.CheckSignature()
	if err != nil {
		logger.Warn("error checking event signature:", err)
		return false
	}
	return isValid
}

func serializeEventForID(event *nostr.Event) []byte {
	serialized, err := json.Marshal([]interface{}{
		0,
		event.PubKey,
		event.CreatedAt,
		event.Kind,
		event.Tags,
		event.Content,
	})
	if err != nil {
		return nil
	}
	return serialized
}

func HashAndCompare(data []byte, hash string) (bool, []byte) {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]) == hash, h[:]
}

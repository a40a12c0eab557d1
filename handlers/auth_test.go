package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice-svc/database"
	"backoffice-svc/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret")

func setupAuthTest(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewAuthHandler(database.NewPostgresAdmins(db), testSecret, time.Hour, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/auth/login", handler.Login)

	return db, mock, router
}

func postLogin(router *gin.Engine, email, password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(LoginRequest{Email: email, Password: password})
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_Login_Success(t *testing.T) {
	db, mock, router := setupAuthTest(t)
	defer db.Close()

	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	mock.ExpectQuery("SELECT id, email, password_hash, role, created_at FROM admin_users WHERE email = \\$1").
		WithArgs("ops@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "created_at"}).
			AddRow(3, "ops@example.com", string(hash), "admin", time.Now()))

	w := postLogin(router, "ops@example.com", "s3cret-pass")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	claims, err := middleware.ParseToken(testSecret, resp.Token)
	if err != nil {
		t.Fatalf("Issued token does not parse: %v", err)
	}
	if claims.Subject != "admin-3" {
		t.Errorf("Expected subject admin-3, got %s", claims.Subject)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Errorf("Response leaks password hash: %s", w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	db, mock, router := setupAuthTest(t)
	defer db.Close()

	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	mock.ExpectQuery("SELECT id, email, password_hash, role, created_at FROM admin_users").
		WithArgs("ops@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "created_at"}).
			AddRow(3, "ops@example.com", string(hash), "admin", time.Now()))

	w := postLogin(router, "ops@example.com", "guess")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthHandler_Login_UnknownAdmin(t *testing.T) {
	db, mock, router := setupAuthTest(t)
	defer db.Close()

	mock.ExpectQuery("SELECT id, email, password_hash, role, created_at FROM admin_users").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	w := postLogin(router, "nobody@example.com", "whatever")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthHandler_Login_DatabaseError(t *testing.T) {
	db, mock, router := setupAuthTest(t)
	defer db.Close()

	mock.ExpectQuery("SELECT id, email, password_hash, role, created_at FROM admin_users").
		WithArgs("ops@example.com").
		WillReturnError(sql.ErrConnDone)

	w := postLogin(router, "ops@example.com", "whatever")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestAuthHandler_Login_InvalidBody(t *testing.T) {
	db, _, router := setupAuthTest(t)
	defer db.Close()

	w := postLogin(router, "not-an-email", "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

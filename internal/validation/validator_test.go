package validation

import (
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registerPayload struct {
	Username        string `json:"username" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,password_policy"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type ratingPayload struct {
	Rating *float64 `json:"rating" validate:"required,gte=0,lte=5"`
}

func TestValidateStructUsesJSONNames(t *testing.T) {
	verr := ValidateStruct(&registerPayload{
		Username:        "alice",
		Email:           "not-an-email",
		Password:        "weak",
		ConfirmPassword: "other",
	})
	require.NotNil(t, verr)
	fields := verr.Fields()
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "confirm_password")
	assert.NotContains(t, fields, "username")
	assert.Equal(t, []string{"confirm_password", "email", "password"}, verr.SortedFields())
}

func TestValidateStructPasses(t *testing.T) {
	assert.Nil(t, ValidateStruct(&registerPayload{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "Secret123",
		ConfirmPassword: "Secret123",
	}))
}

func TestRatingBounds(t *testing.T) {
	val := func(f float64) *float64 { return &f }
	assert.Nil(t, ValidateStruct(&ratingPayload{Rating: val(0)}))
	assert.Nil(t, ValidateStruct(&ratingPayload{Rating: val(5)}))

	verr := ValidateStruct(&ratingPayload{Rating: val(5.5)})
	require.NotNil(t, verr)
	assert.Equal(t, []string{"rating must be less than or equal to 5"}, verr.Fields()["rating"])

	verr = ValidateStruct(&ratingPayload{})
	require.NotNil(t, verr)
	assert.Equal(t, []string{"rating is required"}, verr.Fields()["rating"])
}

func TestNewFieldErrorBody(t *testing.T) {
	verr := NewFieldError("username", "username already exists").Add("email", "email already exists")
	body := verr.Body()
	assert.Equal(t, "username already exists; email already exists", body["error"])
	assert.Len(t, body["fields"], 2)
}

func TestValidateImage(t *testing.T) {
	assert.Nil(t, ValidateImage("avatar", &multipart.FileHeader{Filename: "me.PNG", Size: 1024}))
	assert.NotNil(t, ValidateImage("avatar", &multipart.FileHeader{Filename: "me.gif", Size: 1024}))
	assert.NotNil(t, ValidateImage("avatar", &multipart.FileHeader{Filename: "me.jpg", Size: MaxImageBytes + 1}))
	assert.NotNil(t, ValidateImage("avatar", nil))
}

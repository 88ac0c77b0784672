package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/bookman/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator は構造体情報をキャッシュする共有バリデータを返す。
// エラー中のフィールド名にはjsonタグ名を使う。
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateStruct はvalidateタグを評価し、違反があればVALIDATION_FAILEDを返す。
func validateStruct(v any) *model.APIError {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return model.NewInvalidRequestError()
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, describeFieldError(fe))
	}
	return model.NewValidationError(strings.Join(details, ", "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", fe.Field())
	case "email":
		return fmt.Sprintf("%s はメールアドレス形式で指定してください", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s はUUID形式で指定してください", fe.Field())
	case "min":
		return fmt.Sprintf("%s は %s 以上で指定してください", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s は %s 以下で指定してください", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s は %s のいずれかを指定してください", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s が不正です", fe.Field())
	}
}

// validID はパスパラメータのIDがUUID形式かどうかを返す。
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

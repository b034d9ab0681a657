package validation

import (
	"fmt"
	"regexp"
)

// TableNamePattern определяет допустимый формат имени таблицы
// Только латинские буквы, цифры, '_', '-' и '.'; длина 1-64 символа
var TableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

// RowIDPattern определяет допустимый формат идентификатора строки.
// Нулевой байт запрещён: он разделяет таблицу и строку в ключах хранилища.
var RowIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)

// DatabaseNamePattern ограничивает имя базы, которое становится именем файла
var DatabaseNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const (
	// MaxTableNameLen максимальная длина имени таблицы
	MaxTableNameLen = 64
	// MaxRowIDLen максимальная длина идентификатора строки
	MaxRowIDLen = 128
	// MinPassphraseLen минимальная длина парольной фразы feed
	MinPassphraseLen = 12
)

// ValidateTableName проверяет имя таблицы
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: table name cannot be empty", ErrInvalidName)
	}
	if len(name) > MaxTableNameLen {
		return fmt.Errorf("%w: table name must not exceed %d characters", ErrInvalidName, MaxTableNameLen)
	}
	if !TableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: table name can only contain letters, numbers, '_', '-' and '.'", ErrInvalidName)
	}
	return nil
}

// ValidateRowID проверяет идентификатор строки
func ValidateRowID(rowID string) error {
	if rowID == "" {
		return fmt.Errorf("%w: row id cannot be empty", ErrInvalidName)
	}
	if len(rowID) > MaxRowIDLen {
		return fmt.Errorf("%w: row id must not exceed %d characters", ErrInvalidName, MaxRowIDLen)
	}
	if !RowIDPattern.MatchString(rowID) {
		return fmt.Errorf("%w: row id can only contain letters, numbers, '_', '-', '.' and ':'", ErrInvalidName)
	}
	return nil
}

// ValidateDatabaseName проверяет имя локальной базы
func ValidateDatabaseName(name string) error {
	if !DatabaseNamePattern.MatchString(name) {
		return fmt.Errorf("%w: database name must be 1-64 letters, numbers, '_' or '-'", ErrInvalidName)
	}
	return nil
}

// ValidatePassphrase проверяет минимальные требования к парольной фразе feed
func ValidatePassphrase(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase cannot be empty")
	}
	if len(passphrase) < MinPassphraseLen {
		return fmt.Errorf("passphrase must be at least %d characters long", MinPassphraseLen)
	}
	return nil
}

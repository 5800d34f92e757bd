package processor

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// CompressReport сжимает отчет запуска
func CompressReport(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// DecompressReport распаковывает отчет запуска
func DecompressReport(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки отчета: %w", err)
	}
	return decompressed, nil
}

// EncodeReport сериализует отчет в JSON и сжимает его
func EncodeReport(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации отчета: %w", err)
	}
	return CompressReport(data), nil
}

// DecodeReport распаковывает отчет и возвращает исходный JSON
func DecodeReport(payload []byte) (json.RawMessage, error) {
	data, err := DecompressReport(payload)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("отчет не является корректным JSON")
	}
	return json.RawMessage(data), nil
}

package sensor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/models"
)

// ParseAccelerometerCSV reads rows of uptime_s,x,y,z,unix_s. A header row
// is skipped.
func ParseAccelerometerCSV(r io.Reader) ([]models.AccelerometerSample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 5
	reader.TrimLeadingSpace = true

	var samples []models.AccelerometerSample
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read accelerometer csv: %w", err)
		}

		values := make([]float64, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				if line == 1 {
					values = nil
					break
				}
				return nil, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			values[i] = v
		}
		if values == nil {
			continue
		}

		sec, frac := math.Modf(values[4])
		samples = append(samples, models.AccelerometerSample{
			Uptime:    time.Duration(values[0] * float64(time.Second)),
			X:         values[1],
			Y:         values[2],
			Z:         values[3],
			Timestamp: time.Unix(int64(sec), int64(frac*1e9)).UTC(),
		})
	}
	return samples, nil
}

// ParseAccelerometerCSVFile parses the CSV file at path
func ParseAccelerometerCSVFile(path string) ([]models.AccelerometerSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open accelerometer csv: %w", err)
	}
	defer f.Close()
	return ParseAccelerometerCSV(f)
}

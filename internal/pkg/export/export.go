package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/app/repository"
	"github.com/ManuelReschke/GymDesk/internal/pkg/s3export"
)

// MaxRows caps a single export.
const MaxRows = 10000

var Columns = []string{
	"Date", "Member ID", "Amount", "Currency", "Method", "Frequency",
	"Status", "Order ID", "Provider Order ID", "Transaction ID",
}

type OrderLister interface {
	List(ctx context.Context, filter repository.ListFilter) ([]models.PaymentOrder, error)
}

type Uploader interface {
	UploadCSV(ctx context.Context, objectKey string, body []byte) (*s3export.UploadResult, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// Exporter renders payment orders as CSV and optionally stores the file in S3.
type Exporter struct {
	orders   OrderLister
	uploader Uploader
	now      func() time.Time
}

// NewExporter returns an exporter. uploader may be nil when uploads are disabled.
func NewExporter(orders OrderLister, uploader Uploader) *Exporter {
	return &Exporter{orders: orders, uploader: uploader, now: time.Now}
}

func (e *Exporter) UploadEnabled() bool {
	return e.uploader != nil
}

// FileName is the download name for an export created now.
func (e *Exporter) FileName() string {
	return fmt.Sprintf("payment_export_%s.csv", e.now().UTC().Format("2006-01-02"))
}

// NewObjectKey reserves a storage key for a new export.
func (e *Exporter) NewObjectKey() string {
	return s3export.ObjectKey(e.now(), uuid.NewString())
}

// Render lists the orders matching filter and returns the CSV and row count.
func (e *Exporter) Render(ctx context.Context, filter repository.ListFilter) ([]byte, int, error) {
	if filter.Limit <= 0 || filter.Limit > MaxRows {
		filter.Limit = MaxRows
	}
	orders, err := e.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders for export: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, orders); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(orders), nil
}

// UploadExport renders the export and stores it under objectKey. An object
// already at objectKey is kept, so a retried job does not upload twice.
func (e *Exporter) UploadExport(ctx context.Context, filter repository.ListFilter, objectKey string) error {
	if e.uploader == nil {
		return fmt.Errorf("export upload is disabled")
	}
	exists, err := e.uploader.ObjectExists(ctx, objectKey)
	if err != nil {
		return err
	}
	if exists {
		log.Infof("[Export] %s already uploaded, skipping", objectKey)
		return nil
	}

	body, rows, err := e.Render(ctx, filter)
	if err != nil {
		return err
	}
	if _, err := e.uploader.UploadCSV(ctx, objectKey, body); err != nil {
		return err
	}
	log.Infof("[Export] Uploaded %d orders to %s", rows, objectKey)
	return nil
}

// WriteCSV writes orders in Columns order.
func WriteCSV(w io.Writer, orders []models.PaymentOrder) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i := range orders {
		o := &orders[i]
		if err := cw.Write([]string{
			o.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			o.MemberID,
			strconv.FormatInt(o.Amount, 10),
			o.Currency,
			string(o.PaymentMethod),
			string(o.BillingFrequency),
			string(o.Status),
			o.OrderID,
			o.ProviderRef(),
			o.TransactionRef(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/history"
)

// DynamoDB batch write limit
const batchSize = 25

// DynamoAPI is the part of *dynamodb.Client the history table uses.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// HistoryTable stores metric points and assessments in one table keyed by
// (pk, sk). Series partitions are "series#kind#entity#metric#version" and
// assessment partitions are "assessment#equipment".
type HistoryTable struct {
	svc   DynamoAPI
	table string
}

var _ history.Store = (*HistoryTable)(nil)

func NewHistoryTable(ctx context.Context, region, table string) (*HistoryTable, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewHistoryTableWithClient(dynamodb.NewFromConfig(cfg), table), nil
}

func NewHistoryTableWithClient(svc DynamoAPI, table string) *HistoryTable {
	return &HistoryTable{svc: svc, table: table}
}

type pointItem struct {
	PK               string  `dynamodbav:"pk"`
	SK               string  `dynamodbav:"sk"`
	EntityID         string  `dynamodbav:"entityId"`
	EntityKind       string  `dynamodbav:"entityKind"`
	Metric           string  `dynamodbav:"metric"`
	Period           string  `dynamodbav:"period"`
	Value            float64 `dynamodbav:"value"`
	AlgorithmVersion string  `dynamodbav:"algorithmVersion"`
	RecordedAt       int64   `dynamodbav:"recordedAt"`
}

type assessmentItem struct {
	PK               string                `dynamodbav:"pk"`
	SK               string                `dynamodbav:"sk"`
	AlgorithmVersion string                `dynamodbav:"algorithmVersion"`
	Assessment       domain.RiskAssessment `dynamodbav:"assessment"`
}

func seriesPK(k history.SeriesKey) string {
	return fmt.Sprintf("series#%s#%s#%s#%s", k.EntityKind, k.EntityID, k.Metric, k.AlgorithmVersion)
}

func assessmentPK(equipmentID string) string {
	return "assessment#" + equipmentID
}

// Append writes points in batches of 25. Sort keys embed the record time so
// a recomputation never overwrites an earlier point.
func (h *HistoryTable) Append(ctx context.Context, points ...domain.HistoricalDataPoint) error {
	for i := 0; i < len(points); i += batchSize {
		end := i + batchSize
		if end > len(points) {
			end = len(points)
		}

		batch := points[i:end]
		writeRequests := make([]types.WriteRequest, len(batch))
		for j, p := range batch {
			key := history.SeriesKey{EntityID: p.EntityID, EntityKind: p.EntityKind, Metric: p.Metric, AlgorithmVersion: p.AlgorithmVersion}
			item, err := attributevalue.MarshalMap(pointItem{
				PK:               seriesPK(key),
				SK:               fmt.Sprintf("%s#%020d", p.Period, p.RecordedAt.UnixNano()),
				EntityID:         p.EntityID,
				EntityKind:       string(p.EntityKind),
				Metric:           p.Metric,
				Period:           p.Period,
				Value:            p.Value,
				AlgorithmVersion: p.AlgorithmVersion,
				RecordedAt:       p.RecordedAt.UnixNano(),
			})
			if err != nil {
				return fmt.Errorf("failed to marshal point %d: %w", i+j, err)
			}
			writeRequests[j] = types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
		}

		out, err := h.svc.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{h.table: writeRequests},
		})
		if err != nil {
			return fmt.Errorf("failed to batch write points: %w", err)
		}
		if n := len(out.UnprocessedItems[h.table]); n > 0 {
			return fmt.Errorf("batch write left %d points unprocessed", n)
		}
	}
	return nil
}

func (h *HistoryTable) Series(ctx context.Context, key history.SeriesKey) ([]domain.HistoricalDataPoint, error) {
	items, err := h.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(h.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: seriesPK(key)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}

	var rows []pointItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal points: %w", err)
	}
	points := make([]domain.HistoricalDataPoint, len(rows))
	for i, r := range rows {
		points[i] = domain.HistoricalDataPoint{
			EntityID:         r.EntityID,
			EntityKind:       domain.EntityKind(r.EntityKind),
			Metric:           r.Metric,
			Period:           r.Period,
			Value:            r.Value,
			AlgorithmVersion: r.AlgorithmVersion,
			RecordedAt:       time.Unix(0, r.RecordedAt).UTC(),
		}
	}
	return history.Latest(points), nil
}

func (h *HistoryTable) AppendAssessment(ctx context.Context, a domain.RiskAssessment) error {
	item, err := attributevalue.MarshalMap(assessmentItem{
		PK:               assessmentPK(a.EquipmentID),
		SK:               fmt.Sprintf("%020d#%s", a.ComputedAt.UnixNano(), a.AlgorithmVersion),
		AlgorithmVersion: a.AlgorithmVersion,
		Assessment:       a,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	if _, err := h.svc.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(h.table), Item: item}); err != nil {
		return fmt.Errorf("failed to put assessment: %w", err)
	}
	return nil
}

func (h *HistoryTable) Assessments(ctx context.Context, equipmentID, version string) ([]domain.RiskAssessment, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(h.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: assessmentPK(equipmentID)},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if version != "" {
		input.FilterExpression = aws.String("algorithmVersion = :v")
		input.ExpressionAttributeValues[":v"] = &types.AttributeValueMemberS{Value: version}
	}

	items, err := h.query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	var rows []assessmentItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assessments: %w", err)
	}
	out := make([]domain.RiskAssessment, len(rows))
	for i, r := range rows {
		out[i] = r.Assessment
	}
	return out, nil
}

func (h *HistoryTable) query(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(h.svc, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

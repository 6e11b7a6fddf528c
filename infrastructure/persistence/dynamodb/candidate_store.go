// Package dynamodb implements the candidate store on a single DynamoDB
// table. Candidates and consolidated records share the table under a
// USER#<id> partition key; the sort key prefix separates the entity types.
package dynamodb

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/pkg/errors"
)

const (
	entityCandidate = "CANDIDATE"
	entityRecord    = "RECORD"

	skCandidatePrefix = "CANDIDATE#"
	skRecordPrefix    = "RECORD#"
)

// Client is the slice of the DynamoDB API the store uses
type Client interface {
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// CandidateStore implements ports.CandidateStore on DynamoDB
type CandidateStore struct {
	client    Client
	tableName string
	logger    *zap.Logger
}

var _ ports.CandidateStore = (*CandidateStore)(nil)

// NewCandidateStore creates a DynamoDB-backed store
func NewCandidateStore(client Client, tableName string, logger *zap.Logger) (*CandidateStore, error) {
	if client == nil {
		return nil, errors.NewValidationError("dynamodb client is required")
	}
	if tableName == "" {
		return nil, errors.NewValidationError("table name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandidateStore{
		client:    client,
		tableName: tableName,
		logger:    logger.With(zap.String("component", "dynamodb-store")),
	}, nil
}

// candidateItem is the table shape of a candidate. Timestamps are stored
// as UnixNano so filter expressions can compare them numerically.
type candidateItem struct {
	PK                 string    `dynamodbav:"PK"`
	SK                 string    `dynamodbav:"SK"`
	EntityType         string    `dynamodbav:"EntityType"`
	CandidateID        string    `dynamodbav:"CandidateID"`
	UserID             string    `dynamodbav:"UserID"`
	Content            string    `dynamodbav:"Content"`
	Summary            string    `dynamodbav:"Summary,omitempty"`
	Importance         float64   `dynamodbav:"Importance"`
	Valence            float64   `dynamodbav:"Valence"`
	OccurredAt         int64     `dynamodbav:"OccurredAt"`
	CreatedAt          int64     `dynamodbav:"CreatedAt"`
	UpdatedAt          int64     `dynamodbav:"UpdatedAt"`
	LastAccessedAt     int64     `dynamodbav:"LastAccessedAt"`
	ConsolidationCount int       `dynamodbav:"ConsolidationCount"`
	AccessCount        int       `dynamodbav:"AccessCount"`
	Domains            []string  `dynamodbav:"Domains,omitempty"`
	Tags               []string  `dynamodbav:"Tags,omitempty"`
	Embedding          []float32 `dynamodbav:"Embedding,omitempty"`
	Archived           bool      `dynamodbav:"Archived"`
	GroupID            string    `dynamodbav:"GroupID,omitempty"`
}

// recordItem is the table shape of a consolidated record
type recordItem struct {
	PK         string   `dynamodbav:"PK"`
	SK         string   `dynamodbav:"SK"`
	EntityType string   `dynamodbav:"EntityType"`
	RecordID   string   `dynamodbav:"RecordID"`
	GroupID    string   `dynamodbav:"GroupID"`
	UserID     string   `dynamodbav:"UserID"`
	Title      string   `dynamodbav:"Title,omitempty"`
	Content    string   `dynamodbav:"Content"`
	ParentIDs  []string `dynamodbav:"ParentIDs"`
	Domains    []string `dynamodbav:"Domains,omitempty"`
	Tags       []string `dynamodbav:"Tags,omitempty"`
	Patterns   []string `dynamodbav:"Patterns,omitempty"`
	Insights   []string `dynamodbav:"Insights,omitempty"`
	Importance float64  `dynamodbav:"Importance"`
	Coherence  float64  `dynamodbav:"Coherence"`
	SpanStart  int64    `dynamodbav:"SpanStart"`
	SpanEnd    int64    `dynamodbav:"SpanEnd"`
	CreatedAt  int64    `dynamodbav:"CreatedAt"`
}

func userPK(userID string) string { return "USER#" + userID }

// Save persists a candidate
func (s *CandidateStore) Save(ctx context.Context, candidate *entities.Candidate) error {
	if candidate == nil {
		return errors.NewValidationError("candidate is required")
	}

	item := candidateItem{
		PK:                 userPK(candidate.UserID()),
		SK:                 skCandidatePrefix + candidate.ID().String(),
		EntityType:         entityCandidate,
		CandidateID:        candidate.ID().String(),
		UserID:             candidate.UserID(),
		Content:            candidate.Content(),
		Summary:            candidate.Summary(),
		Importance:         candidate.Importance().Value(),
		Valence:            candidate.Valence().Value(),
		OccurredAt:         candidate.OccurredAt().UnixNano(),
		CreatedAt:          candidate.CreatedAt().UnixNano(),
		UpdatedAt:          candidate.UpdatedAt().UnixNano(),
		LastAccessedAt:     candidate.LastAccessedAt().UnixNano(),
		ConsolidationCount: candidate.ConsolidationCount(),
		AccessCount:        candidate.AccessCount(),
		Domains:            candidate.Domains(),
		Tags:               candidate.Tags(),
		Embedding:          candidate.Embedding(),
		Archived:           candidate.IsArchived(),
	}
	if !candidate.GroupID().IsZero() {
		item.GroupID = candidate.GroupID().String()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return errors.NewInternalError("marshal candidate item").WithCause(err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return errors.NewDatabaseError("save candidate", err)
	}
	return nil
}

// GetByID retrieves one candidate
func (s *CandidateStore) GetByID(ctx context.Context, userID string, id valueobjects.CandidateID) (*entities.Candidate, error) {
	key, err := attributevalue.MarshalMap(map[string]string{
		"PK": userPK(userID),
		"SK": skCandidatePrefix + id.String(),
	})
	if err != nil {
		return nil, errors.NewInternalError("marshal key").WithCause(err)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return nil, errors.NewDatabaseError("get candidate", err)
	}
	if len(out.Item) == 0 {
		return nil, errors.NewNotFoundError("candidate " + id.String())
	}

	var item candidateItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, errors.NewInternalError("unmarshal candidate item").WithCause(err)
	}
	return item.toEntity()
}

// GetByUserID returns every candidate under the user's partition
func (s *CandidateStore) GetByUserID(ctx context.Context, userID string) ([]*entities.Candidate, error) {
	items, err := s.queryPrefix(ctx, userID, skCandidatePrefix, expression.Expression{})
	if err != nil {
		return nil, err
	}

	candidates := make([]*entities.Candidate, 0, len(items))
	for _, raw := range items {
		var item candidateItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, errors.NewInternalError("unmarshal candidate item").WithCause(err)
		}
		candidate, err := item.toEntity()
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// SelectConsolidationCandidates filters server-side on age, archival and
// consolidation count, then truncates to the requested limit
func (s *CandidateStore) SelectConsolidationCandidates(ctx context.Context, criteria ports.SelectionCriteria) ([]*entities.Candidate, error) {
	if criteria.UserID == "" {
		return nil, errors.NewValidationError("user ID is required")
	}
	asOf := criteria.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	cutoff := asOf.Add(-criteria.MinAge).UnixNano()

	filter := expression.Name("Archived").Equal(expression.Value(false)).
		And(expression.Name("ConsolidationCount").LessThan(expression.Value(criteria.MaxConsolidationCount))).
		And(expression.Name("OccurredAt").LessThanEqual(expression.Value(cutoff)))

	expr, err := expression.NewBuilder().
		WithKeyCondition(keyPrefixCondition(criteria.UserID, skCandidatePrefix)).
		WithFilter(filter).
		Build()
	if err != nil {
		return nil, errors.NewInternalError("build selection expression").WithCause(err)
	}

	items, err := s.queryPrefix(ctx, criteria.UserID, skCandidatePrefix, expr)
	if err != nil {
		return nil, err
	}

	candidates := make([]*entities.Candidate, 0, len(items))
	for _, raw := range items {
		var item candidateItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, errors.NewInternalError("unmarshal candidate item").WithCause(err)
		}
		candidate, err := item.toEntity()
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}

	sortByOccurrence(candidates)
	if criteria.Limit > 0 && len(candidates) > criteria.Limit {
		candidates = candidates[:criteria.Limit]
	}
	return candidates, nil
}

// MarkConsolidated updates every listed candidate in one transaction, so a
// partially consolidated group never persists
func (s *CandidateStore) MarkConsolidated(ctx context.Context, userID string, ids []valueobjects.CandidateID, groupID valueobjects.GroupID) error {
	if len(ids) == 0 {
		return errors.NewValidationError("candidate IDs are required")
	}
	if groupID.IsZero() {
		return errors.NewValidationError("group ID is required")
	}

	now := time.Now().UnixNano()
	writes := make([]types.TransactWriteItem, 0, len(ids))
	for _, id := range ids {
		key, err := attributevalue.MarshalMap(map[string]string{
			"PK": userPK(userID),
			"SK": skCandidatePrefix + id.String(),
		})
		if err != nil {
			return errors.NewInternalError("marshal key").WithCause(err)
		}

		update := expression.Set(expression.Name("GroupID"), expression.Value(groupID.String())).
			Set(expression.Name("UpdatedAt"), expression.Value(now)).
			Add(expression.Name("ConsolidationCount"), expression.Value(1))
		condition := expression.AttributeExists(expression.Name("PK")).
			And(expression.Name("Archived").Equal(expression.Value(false)))

		expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
		if err != nil {
			return errors.NewInternalError("build update expression").WithCause(err)
		}

		writes = append(writes, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(s.tableName),
				Key:                       key,
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		return errors.NewDatabaseError("mark consolidated", err)
	}
	return nil
}

// SaveRecord persists a consolidated record
func (s *CandidateStore) SaveRecord(ctx context.Context, record *entities.ConsolidatedRecord) error {
	if record == nil {
		return errors.NewValidationError("record is required")
	}

	parents := make([]string, 0, len(record.ParentIDs()))
	for _, id := range record.ParentIDs() {
		parents = append(parents, id.String())
	}

	item := recordItem{
		PK:         userPK(record.UserID()),
		SK:         skRecordPrefix + record.ID().String(),
		EntityType: entityRecord,
		RecordID:   record.ID().String(),
		GroupID:    record.GroupID().String(),
		UserID:     record.UserID(),
		Title:      record.Title(),
		Content:    record.Content(),
		ParentIDs:  parents,
		Domains:    record.Domains(),
		Tags:       record.Tags(),
		Patterns:   record.Patterns(),
		Insights:   record.Insights(),
		Importance: record.Importance().Value(),
		Coherence:  record.Coherence().Value(),
		SpanStart:  record.SpanStart().UnixNano(),
		SpanEnd:    record.SpanEnd().UnixNano(),
		CreatedAt:  record.CreatedAt().UnixNano(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return errors.NewInternalError("marshal record item").WithCause(err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return errors.NewDatabaseError("save record", err)
	}
	return nil
}

// GetRecordsByUserID returns every consolidated record for a user
func (s *CandidateStore) GetRecordsByUserID(ctx context.Context, userID string) ([]*entities.ConsolidatedRecord, error) {
	items, err := s.queryPrefix(ctx, userID, skRecordPrefix, expression.Expression{})
	if err != nil {
		return nil, err
	}

	records := make([]*entities.ConsolidatedRecord, 0, len(items))
	for _, raw := range items {
		var item recordItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, errors.NewInternalError("unmarshal record item").WithCause(err)
		}
		record, err := item.toEntity()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes a candidate
func (s *CandidateStore) Delete(ctx context.Context, userID string, id valueobjects.CandidateID) error {
	key, err := attributevalue.MarshalMap(map[string]string{
		"PK": userPK(userID),
		"SK": skCandidatePrefix + id.String(),
	})
	if err != nil {
		return errors.NewInternalError("marshal key").WithCause(err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return errors.NewDatabaseError("delete candidate", err)
	}
	return nil
}

// queryPrefix pages through one user's partition under a sort key prefix.
// A zero expr queries without a filter.
func (s *CandidateStore) queryPrefix(ctx context.Context, userID, prefix string, expr expression.Expression) ([]map[string]types.AttributeValue, error) {
	if expr.KeyCondition() == nil {
		built, err := expression.NewBuilder().
			WithKeyCondition(keyPrefixCondition(userID, prefix)).
			Build()
		if err != nil {
			return nil, errors.NewInternalError("build query expression").WithCause(err)
		}
		expr = built
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, errors.NewDatabaseError("query candidates", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return items, nil
}

func keyPrefixCondition(userID, prefix string) expression.KeyConditionBuilder {
	return expression.Key("PK").Equal(expression.Value(userPK(userID))).
		And(expression.Key("SK").BeginsWith(prefix))
}

func (item candidateItem) toEntity() (*entities.Candidate, error) {
	id, err := valueobjects.NewCandidateIDFromString(item.CandidateID)
	if err != nil {
		return nil, errors.NewInternalError("invalid stored candidate ID").WithCause(err)
	}
	return entities.ReconstructCandidate(
		id,
		item.UserID,
		item.Content,
		item.Summary,
		valueobjects.NewUnitScore(item.Importance),
		valueobjects.NewModulation(item.Valence),
		time.Unix(0, item.OccurredAt),
		time.Unix(0, item.CreatedAt),
		time.Unix(0, item.UpdatedAt),
		time.Unix(0, item.LastAccessedAt),
		item.ConsolidationCount,
		item.AccessCount,
		item.Domains,
		item.Tags,
		item.Embedding,
		item.Archived,
	)
}

func (item recordItem) toEntity() (*entities.ConsolidatedRecord, error) {
	id, err := valueobjects.NewCandidateIDFromString(item.RecordID)
	if err != nil {
		return nil, errors.NewInternalError("invalid stored record ID").WithCause(err)
	}
	groupID, err := valueobjects.NewGroupIDFromString(item.GroupID)
	if err != nil {
		return nil, errors.NewInternalError("invalid stored group ID").WithCause(err)
	}

	parents := make([]valueobjects.CandidateID, 0, len(item.ParentIDs))
	for _, raw := range item.ParentIDs {
		parent, err := valueobjects.NewCandidateIDFromString(raw)
		if err != nil {
			return nil, errors.NewInternalError("invalid stored parent ID").WithCause(err)
		}
		parents = append(parents, parent)
	}

	return entities.ReconstructConsolidatedRecord(id, entities.ConsolidatedRecordParams{
		GroupID:    groupID,
		UserID:     item.UserID,
		Title:      item.Title,
		Content:    item.Content,
		ParentIDs:  parents,
		Domains:    item.Domains,
		Tags:       item.Tags,
		Patterns:   item.Patterns,
		Insights:   item.Insights,
		Importance: item.Importance,
		Coherence:  valueobjects.NewUnitScore(item.Coherence),
		SpanStart:  time.Unix(0, item.SpanStart),
		SpanEnd:    time.Unix(0, item.SpanEnd),
	}, time.Unix(0, item.CreatedAt))
}

// sortByOccurrence orders oldest first, breaking ties by ID for stable
// selection across cycles
func sortByOccurrence(candidates []*entities.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].OccurredAt().Equal(candidates[j].OccurredAt()) {
			return candidates[i].OccurredAt().Before(candidates[j].OccurredAt())
		}
		return candidates[i].ID().String() < candidates[j].ID().String()
	})
}

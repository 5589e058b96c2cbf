package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/blogman/internal/model"
)

// postSeqCounter はcountersコレクション内の投稿連番のキー。
const postSeqCounter = "blog_posts"

// postDocument はblog_postsコレクションのドキュメント表現。
type postDocument struct {
	ID                string    `bson:"_id"`
	Seq               int64     `bson:"seq"`
	Title             string    `bson:"title"`
	Content           string    `bson:"content"`
	AuthorUserID      string    `bson:"author_user_id"`
	AuthorDisplayName string    `bson:"author_display_name"`
	Slug              string    `bson:"slug"`
	ImageURL          *string   `bson:"image_url,omitempty"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func (d *postDocument) toModel() *model.Post {
	return &model.Post{
		ID:                d.ID,
		Title:             d.Title,
		Content:           d.Content,
		AuthorUserID:      d.AuthorUserID,
		AuthorDisplayName: d.AuthorDisplayName,
		Slug:              d.Slug,
		ImageURL:          d.ImageURL,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// MongoPostRepo はMongoDBを使用した投稿リポジトリ。
// 作成順はcountersコレクションで採番するseqで保持する。
type MongoPostRepo struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

// NewMongoPostRepo はMongoPostRepoを生成する。
func NewMongoPostRepo(db *mongo.Database) *MongoPostRepo {
	return &MongoPostRepo{
		coll:     db.Collection("blog_posts"),
		counters: db.Collection("counters"),
	}
}

// EnsureMongoIndexes は投稿の検索・一覧に必要なインデックスを作成する。
// 既に存在する場合は何もしない。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("blog_posts").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create blog_posts indexes: %w", err)
	}

	_, err = db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}
	return nil
}

// nextSeq はcountersコレクションを原子的にインクリメントして次の連番を返す。
func (r *MongoPostRepo) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": postSeqCounter},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate post sequence: %w", err)
	}
	return counter.Value, nil
}

func (r *MongoPostRepo) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*model.Post, error) {
	var doc postDocument
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *MongoPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	post, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to find post by ID: %w", err)
	}
	return post, nil
}

// FindBySlug はスラッグが一致する投稿のうち最初に作成されたものを返す。
func (r *MongoPostRepo) FindBySlug(ctx context.Context, slug string) (*model.Post, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: 1}})
	post, err := r.findOne(ctx, bson.M{"slug": slug}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find post by slug: %w", err)
	}
	return post, nil
}

// Create は投稿を作成する。
func (r *MongoPostRepo) Create(ctx context.Context, post *model.Post) error {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}

	_, err = r.coll.InsertOne(ctx, postDocument{
		ID:                post.ID,
		Seq:               seq,
		Title:             post.Title,
		Content:           post.Content,
		AuthorUserID:      post.AuthorUserID,
		AuthorDisplayName: post.AuthorDisplayName,
		Slug:              post.Slug,
		ImageURL:          post.ImageURL,
		CreatedAt:         post.CreatedAt,
		UpdatedAt:         post.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Update はタイトル・本文・画像URL・更新日時を上書きする。
func (r *MongoPostRepo) Update(ctx context.Context, post *model.Post) error {
	update := bson.M{
		"$set": bson.M{
			"title":      post.Title,
			"content":    post.Content,
			"updated_at": post.UpdatedAt,
		},
	}
	if post.ImageURL != nil {
		update["$set"].(bson.M)["image_url"] = *post.ImageURL
	} else {
		update["$unset"] = bson.M{"image_url": ""}
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": post.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は投稿を物理削除する。
func (r *MongoPostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List は全投稿を作成日時の降順で返す。
func (r *MongoPostRepo) List(ctx context.Context) ([]*model.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []*model.Post
	for cursor.Next(ctx) {
		var doc postDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode post: %w", err)
		}
		posts = append(posts, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*MongoPostRepo)(nil)

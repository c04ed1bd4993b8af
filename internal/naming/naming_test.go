package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableName(t *testing.T) {
	n := Default()
	tests := []struct {
		model string
		want  string
	}{
		{"User", "users"},
		{"BlogPost", "blog_posts"},
		{"Category", "categories"},
		{"Person", "people"},
		{"HTTPServer", "http_servers"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, n.TableName(tt.model))
		})
	}
}

func TestTableNameWithOverrides(t *testing.T) {
	n := New(Config{PluralOverrides: map[string]string{"status": "statuses"}})
	assert.Equal(t, "order_statuses", n.TableName("OrderStatus"))
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "user_id", ToSnakeCase("userId"))
	assert.Equal(t, "post", ToSnakeCase("Post"))
	assert.Equal(t, "v2_item", ToSnakeCase("V2Item"))
	assert.Equal(t, "already_snake", ToSnakeCase("already_snake"))
}

func TestAuxiliaryTableNames(t *testing.T) {
	assert.Equal(t, "_PostToTag", LinkTable("PostToTag"))
	assert.Equal(t, "posts_tags", ListTable("posts", "tags"))
}

package snowflake

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// NodeEnv 多实例部署时每个节点要配置不同的值，范围 0-1023
const NodeEnv = "ORBIT_NODE_ID"

var node *snowflake.Node

func init() {
	if err := SetNode(nodeFromEnv()); err != nil {
		panic(err)
	}
}

func nodeFromEnv() int64 {
	n, err := strconv.ParseInt(os.Getenv(NodeEnv), 10, 64)
	if err != nil {
		return 1
	}
	return n
}

// SetNode 切换生成节点，超出范围返回错误
func SetNode(id int64) error {
	n, err := snowflake.NewNode(id)
	if err != nil {
		return err
	}
	node = n
	return nil
}

// GenID 提现流水号
func GenID() int64 {
	return node.Generate().Int64()
}

package xerr

// 定义了统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	ValidationFailedCode  = 40001 // 参数验证失败
	ChunkMissingCode      = 40011 // 上传分片丢失
	SizeMismatchCode      = 40012 // 合并后的文件大小与声明不符
	InvalidChunkIndexCode = 40013 // 分片序号超出范围
	IncompleteUploadCode  = 40014 // 分片尚未全部上传

	// --- 认证与授权错误系列 (401xx) ---
	UnauthorizedCode = 40100 // 通用未授权
	TokenInvalidCode = 40101 // Token 无效或过期

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode              = 40400 // 通用资源未找到
	UploadSessionNotFoundCode = 40406 // 上传会话不存在

	// --- 业务逻辑冲突系列 (409xx) ---
	CompletionInProgressCode = 40905 // 同一会话正在合并

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 存储服务操作失败（如MinIO）
)

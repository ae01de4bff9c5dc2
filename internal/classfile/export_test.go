package classfile

var DecodeModifiedUTF8 = decodeModifiedUTF8
